// Command swarmbender is a thin CLI wiring the Render Pipeline and the
// Secrets Lifecycle Engine together. It is not itself the subject of this
// repository's design; it exists so the core packages have a runnable
// front door.
package main

func main() {
	Execute()
}
