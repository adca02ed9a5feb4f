// Command replay-runner replays recorded touchscreen sessions on Android
// devices and verifies the UI state at every checkpoint.
package main

import "github.com/devicelab-dev/replay-runner/pkg/cli"

func main() {
	cli.Execute()
}
