package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/errors"
)

// ShouldOutputJSON reports whether cmd should print JSON. A local --json flag
// wins over the root persistent one; STRATA_JSON=1 applies when neither is set.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return envJSON()
	}

	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return envJSON()
}

func envJSON() bool {
	v := os.Getenv("STRATA_JSON")
	return v == "1" || v == "true"
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Println(string(data))
	return nil
}
