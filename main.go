package main

import "github.com/nextlevelbuilder/turnbuf/cmd"

func main() {
	cmd.Execute()
}
