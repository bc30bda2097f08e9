package main

import (
	"os"

	"procdocs/app"
)

func main() {
	os.Exit(app.Run())
}
