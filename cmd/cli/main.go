package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"nodelink/cmd/cli/command"
	"nodelink/internal/panel"
	"nodelink/internal/pkg"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// 打印欢迎信息
func printWelcomeMessage(addr string) {
	fmt.Printf("Welcome to the nodelink CLI REPL, connected to %s. Type 'exit' to quit.\n", addr)
	fmt.Println("Type 'help' to see the list of available commands.")
}

// 打印帮助信息
func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  command <target> <on|off>        Switch an actuator by id or type.")
	fmt.Println("  refresh [sensors|actuators|all]  Request a full snapshot.")
	fmt.Println("  watch [duration]                 Print incoming messages for a while.")
	fmt.Println("  help                             Show this help message.")
	fmt.Println("  exit                             Exit the REPL.")
}

func main() {
	var (
		addr   string
		nodeID string
		wait   time.Duration
	)
	launch := &cobra.Command{
		Use:   "nodelink-cli",
		Short: "Interactive console for one sensor node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return repl(addr, nodeID, wait)
		},
	}
	launch.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9000", "节点地址")
	launch.Flags().StringVarP(&nodeID, "node", "n", "cli", "发出消息使用的节点 ID")
	launch.Flags().DurationVarP(&wait, "wait", "w", 2*time.Second, "等待应答的时间")
	if err := launch.Execute(); err != nil {
		os.Exit(1)
	}
}

func repl(addr, nodeID string, wait time.Duration) error {
	console := command.NewConsole(os.Stdout, wait)
	client, err := panel.NewRemoteClient(context.Background(), pkg.RemoteNodeConfig{ID: nodeID, Addr: addr}, console,
		panel.WithClientMetrics(pkg.NewMetrics(prometheus.NewRegistry())))
	if err != nil {
		return err
	}
	if err := client.Connect(context.Background()); err != nil {
		return err
	}
	defer client.Close()
	console.Bind(client)

	// 创建根命令
	rootCmd := command.NewRootCommand(console)
	scanner := bufio.NewScanner(os.Stdin)
	printWelcomeMessage(addr)

	// 进入 REPL 循环
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit":
			fmt.Println("Bye.")
			return nil
		case "help":
			printHelp()
			continue
		}

		args := strings.Fields(input)
		switch args[0] {
		case "command", "refresh", "watch":
			rootCmd.SetArgs(args)
			if err := rootCmd.Execute(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		default:
			fmt.Printf("Unknown command: %s\n", args[0])
			fmt.Println("Type 'help' to see the list of available commands.")
		}
		select {
		case <-client.Done():
			fmt.Println("Node closed the connection.")
			return nil
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
	return nil
}
