// Command keyward runs the API key validation service and administers it.
package main

func main() {
	Execute()
}
