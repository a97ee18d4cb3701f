package main

import "github.com/surajsub/deployassist/cmd"

func main() {
	cmd.Execute()
}
