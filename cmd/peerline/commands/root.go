package commands

import (
	"github.com/peerline/peerline/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for Peerline
var RootCmd = &cobra.Command{
	Use:              "peerline",
	Short:            "peerline p2p social network node",
	TraverseChildren: true,
}
