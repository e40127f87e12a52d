// Command chatprobe drives the assessment chat and the ultrasound classifier
// from a terminal.
package main

func main() {
	Execute()
}
