package main

import "github.com/drgolem/diskstream/cmd"

func main() {
	cmd.Execute()
}
