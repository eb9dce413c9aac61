package main

import "github.com/MeKo-Tech/spotit/cmd/spotit/cmd"

func main() {
	cmd.Execute()
}
