package main

import "github.com/user/ansari/cmd"

func main() {
	cmd.Execute()
}
