// cmd/fzctl/main.go
// Entrypoint for the `fzctl` operator CLI. The file is intentionally tiny:
// it delegates all logic to the root command defined in root.go, mirroring
// the teacher's cmd/flarego/main.go split.
package main

func main() {
	Execute()
}
