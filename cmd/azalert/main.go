// azalert provisions an App Service plan with a CPU metric alert wired to an
// action group, then tears it all down again.
package main

func main() {
	Execute()
}
