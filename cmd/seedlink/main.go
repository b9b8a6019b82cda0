// Command seedlink resolves gated file-host redirect links into direct
// download URLs, either as an HTTP service or one link at a time.
//
// Usage:
//
//	seedlink serve --addr :10000
//	seedlink resolve <url>
package main

func main() {
	Execute()
}
