// The main package for the worldstat executable.
package main

import (
	"github.com/atlasforge/worldstat-crawler/cmd"
)

func main() {
	cmd.Execute()
}
