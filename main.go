package main

import "github.com/derickschaefer/energyratio/cmd"

func main() {
	cmd.Execute()
}
