package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var errNotBound = errors.New("not connected to a node")

// NewRootCommand 创建根命令
func NewRootCommand(c *Console) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nodelink-cli",
		Short:         "Talk to a sensor node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewCommandCommand(c))
	rootCmd.AddCommand(NewRefreshCommand(c))
	rootCmd.AddCommand(NewWatchCommand(c))

	return rootCmd
}

// ParseState 解析 on/off 参数
func ParseState(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q, want on or off", arg)
}

// NewCommandCommand 创建 command 子命令
func NewCommandCommand(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "command <target> <on|off>",
		Short: "Switch an actuator, target is a device id or type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.sender == nil {
				return errNotBound
			}
			on, err := ParseState(args[1])
			if err != nil {
				return err
			}
			c.drain()
			if err := c.sender.SendCommand(args[0], on); err != nil {
				return err
			}
			if c.collect(c.Wait, isReply) == 0 {
				fmt.Fprintln(c.Out, "(no reply)")
			}
			return nil
		},
	}
}

// NewRefreshCommand 创建 refresh 子命令，打印快照直到节点确认
func NewRefreshCommand(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [sensors|actuators|all]",
		Short: "Request a full snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.sender == nil {
				return errNotBound
			}
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			c.drain()
			if err := c.sender.RequestDataRefresh(target); err != nil {
				return err
			}
			c.collect(c.Wait, isReply)
			return nil
		},
	}
}

// NewWatchCommand 创建 watch 子命令，打印一段时间内收到的全部消息
func NewWatchCommand(c *Console) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [duration]",
		Short: "Print incoming messages for a while (default 10s)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := 10 * time.Second
			if len(args) == 1 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
				d = parsed
			}
			n := c.collect(d, nil)
			fmt.Fprintf(c.Out, "%d message(s)\n", n)
			return nil
		},
	}
}

