package main

import "github.com/venturelink/pitchcall/cmd"

func main() {
	cmd.Execute()
}
