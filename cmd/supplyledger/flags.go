package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"supplyledger/pkg/domain"
)

func flagString(cmd *cobra.Command, name string) string {
	s, _ := cmd.Flags().GetString(name)
	return s
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
