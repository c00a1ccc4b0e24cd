// Kirja - cloud inventory reports
// List. Write. Upload.
package main

func main() {
	Execute()
}
