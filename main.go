package main

import "github.com/Zerofisher/wordchain/cmd"

func main() {
	cmd.Execute()
}
