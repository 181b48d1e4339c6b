package main

import (
	"log"

	"github.com/thiagokokada/gitmeta/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("gitmeta: %v", err)
	}
}
