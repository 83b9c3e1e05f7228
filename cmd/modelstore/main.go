// Command modelstore serves and manages a directory of collaboratively edited models.
package main

import "github.com/ucmodeler/modelstore/internal/cli"

func main() {
	cli.Execute()
}
