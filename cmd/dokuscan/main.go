package main

import "github.com/dokuscan/dokuscan/cmd/dokuscan/cmd"

func main() {
	cmd.Execute()
}
