// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/modhost/cmd/modhost"

func main() {
	cmd.Execute()
}
