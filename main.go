package main

import "github.com/jcdickinson/doxylink/cmd"

func main() {
	cmd.Execute()
}
