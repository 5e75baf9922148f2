// The main package for the talkmigrate executable.
package main

import (
	"github.com/JakeFAU/talkmigrate/cmd"
)

func main() {
	cmd.Execute()
}
