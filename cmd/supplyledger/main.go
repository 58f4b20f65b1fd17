// Command supplyledger deploys and operates the token ledger and the supply
// chain registry.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
	}
}

// execute runs one invocation and always releases what it opened.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	var opened *app
	root := newRootCmd(func(a *app) { opened = a })
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if opened != nil {
		if closeErr := opened.close(); err == nil {
			err = closeErr
		}
	}
	return err
}
