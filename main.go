package main

import (
	"os"

	"github.com/sauzeros/shipwright/internal/shipwright"
)

func main() {
	os.Exit(shipwright.Execute())
}
