package trampoline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/trampoline/internal/compose"
	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/docker"
	"github.com/manifest-network/trampoline/internal/network"
	"github.com/manifest-network/trampoline/internal/project"
	"github.com/manifest-network/trampoline/sdk/rpc"
)

// newDockerAPI is swapped in tests.
var newDockerAPI = func() (docker.API, error) {
	return docker.NewClient()
}

// runDocker runs docker CLI commands. Swapped in tests.
var runDocker = func(ctx context.Context, cmd *docker.Command) error {
	slog.Debug("Running docker", "args", cmd.String())
	return cmd.Run(ctx)
}

func nodeName(p *project.Project) string {
	return p.Config.Name + "-node"
}

func networkConfigPath(p *project.Project) string {
	return filepath.Join(p.NetworkDir(), network.ConfigFile)
}

// withNetwork loads the project and its saved network and calls fn.
func withNetwork(fn func(p *project.Project, n *network.Network) error) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	api, err := newDockerAPI()
	if err != nil {
		return err
	}
	defer api.Close()

	n, err := network.Load(networkConfigPath(p), api)
	if err != nil {
		return fmt.Errorf("no network found, run `trampoline network init` first: %w", err)
	}
	return fn(p, n)
}

var NetworkCmd = &cobra.Command{
	Use:     "network",
	Aliases: []string{"net"},
	Short:   "Manage the local development network",
}

var networkInitCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Create the network, a node and an indexer",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		env, err := p.Env()
		if err != nil {
			return err
		}

		cfg := config.LoadNetworkConfigFromCLI()
		cfg.ProjectDir = p.RootDir
		if !cmd.Flags().Changed("node-port") {
			cfg.NodePort = env.Chain.HostPort
		}
		if !cmd.Flags().Changed("indexer-port") {
			cfg.IndexerPort = env.Indexer.HostPort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid Network configuration: %w", err)
		}

		path := networkConfigPath(p)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("network already initialized at %s, use `trampoline network recreate`", path)
		}

		api, err := newDockerAPI()
		if err != nil {
			return err
		}
		defer api.Close()

		ctx := cmd.Context()
		n, err := network.New(ctx, api, p.Config.Name)
		if err != nil {
			return err
		}
		if err := setupNetwork(ctx, n, p, env, cfg, path); err != nil {
			if derr := n.Delete(ctx); derr != nil {
				slog.Error("Failed to clean up network", "network", network.DockerName(n.Name), "error", derr)
			}
			return err
		}
		slog.Info("Network initialized", "network", network.DockerName(n.Name), "config", path)
		fmt.Fprintln(cmd.OutOrStdout(), n.String())
		return nil
	},
}

// setupNetwork adds the node and the indexer to a new network and saves it.
func setupNetwork(ctx context.Context, n *network.Network, p *project.Project, env *project.Env, cfg config.NetworkConfig, path string) error {
	if cfg.PullImages {
		if err := n.PullImages(ctx); err != nil {
			return err
		}
	}

	chainDir := p.Binding(env.Chain)
	if err := os.MkdirAll(chainDir, 0o755); err != nil {
		return fmt.Errorf("failed to create chain directory: %w", err)
	}
	node := nodeName(p)
	bind := docker.Volume{Host: chainDir, Container: env.Chain.ContainerMount}.String()
	if _, err := n.AddCkb(ctx, node, []network.PortPair{port(env.Chain.ContainerPort, cfg.NodePort)}, bind); err != nil {
		return err
	}
	if _, err := n.AddIndexer(ctx, node, []network.PortPair{port(env.Indexer.ContainerPort, cfg.IndexerPort)}); err != nil {
		return err
	}
	return n.Save(path)
}

func port(container, host uint16) network.PortPair {
	return network.PortPair{Container: strconv.Itoa(int(container)), Host: strconv.Itoa(int(host))}
}

var networkRecreateCmd = &cobra.Command{
	Use:   "recreate",
	Short: "Delete and recreate the saved network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		api, err := newDockerAPI()
		if err != nil {
			return err
		}
		defer api.Close()

		path := networkConfigPath(p)
		n, err := network.FromConfig(cmd.Context(), api, path)
		if err != nil {
			return err
		}
		if err := n.Save(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.String())
		return nil
	},
}

var networkLaunchCmd = &cobra.Command{
	Use:     "launch",
	Aliases: []string{"l"},
	Short:   "Start the network services",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(_ *project.Project, n *network.Network) error {
			if err := n.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trampoline Network launched")
			return nil
		})
	},
}

var networkStopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"s"},
	Short:   "Stop the network services",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(_ *project.Project, n *network.Network) error {
			if err := n.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trampoline Network stopped")
			return nil
		})
	},
}

var networkResetCmd = &cobra.Command{
	Use:     "reset [service]",
	Aliases: []string{"r"},
	Short:   "Restart one or every service",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(_ *project.Project, n *network.Network) error {
			if len(args) == 1 {
				return n.Reset(cmd.Context(), args[0])
			}
			for _, s := range n.Services {
				if err := n.Reset(cmd.Context(), s.Name); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var networkLogsCmd = &cobra.Command{
	Use:   "logs [service]",
	Short: "Print the logs of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(_ *project.Project, n *network.Network) error {
			var w io.Writer = cmd.OutOrStdout()
			if out := viper.GetString("logs-out"); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return n.Logs(cmd.Context(), args[0], w, viper.GetBool("follow"))
		})
	},
}

var networkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the network services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(_ *project.Project, n *network.Network) error {
			statuses, err := n.Status(cmd.Context())
			if err != nil {
				return err
			}
			return network.WriteStatusTable(cmd.OutOrStdout(), statuses)
		})
	},
}

var networkDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the network and its containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(p *project.Project, n *network.Network) error {
			if err := n.Delete(cmd.Context()); err != nil {
				return err
			}
			if err := os.Remove(networkConfigPath(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove network config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trampoline Network deleted")
			return nil
		})
	},
}

var networkSetMinerCmd = &cobra.Command{
	Use:   "set-miner",
	Short: "Set the lock receiving block rewards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(p *project.Project, n *network.Network) error {
			c, err := p.LoadCkbConfig()
			if err != nil {
				return fmt.Errorf("failed to load node configuration, was the network launched?: %w", err)
			}
			if pubkey := viper.GetString("pubkey"); pubkey != "" {
				b, err := decodeHex(pubkey)
				if err != nil {
					return fmt.Errorf("invalid public key: %w", err)
				}
				if err := c.SetMinerPubkey(b); err != nil {
					return err
				}
			} else {
				b, err := decodeHex(viper.GetString("lock-arg"))
				if err != nil {
					return fmt.Errorf("invalid lock arg: %w", err)
				}
				if err := c.SetMinerLockArg(b); err != nil {
					return err
				}
			}
			if err := p.SaveCkbConfig(c); err != nil {
				return err
			}
			ba, err := c.Miner()
			if err != nil {
				return err
			}
			slog.Info("Miner set", "args", ba.Args)
			return n.Restart(cmd.Context(), nodeName(p))
		})
	},
}

var networkConfigCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"c"},
	Short:   "Print the network and environment configuration",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNetwork(func(p *project.Project, n *network.Network) error {
			env, err := p.Env()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, n.String())
			fmt.Fprintf(w, "\n[chain]\n%s\n[miner]\n%s\n[indexer]\n%s", env.Chain, env.Miner, env.Indexer)
			return nil
		})
	},
}

var networkIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run a standalone indexer container for the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		env, err := p.Env()
		if err != nil {
			return err
		}
		c := docker.Container{
			Name:    p.Config.Name + "-indexer",
			Ports:   []docker.Port{{Host: env.Indexer.HostPort, Container: env.Indexer.ContainerPort}},
			Volumes: []docker.Volume{{Host: p.Binding(env.Indexer), Container: env.Indexer.ContainerMount}},
			Image:   docker.Image{Name: "nervos/ckb-indexer", Tag: "latest"},
		}
		run := docker.RunContainer(c, true, true)
		run.Args = append(run.Args, "-s", env.Indexer.ContainerMount, "-c", fmt.Sprintf("http://%s:%d", env.Chain.Host, env.Chain.HostPort), "-l", fmt.Sprintf("0.0.0.0:%d", env.Indexer.ContainerPort))
		return runDocker(cmd.Context(), run)
	},
}

var networkMinerCmd = &cobra.Command{
	Use:   "miner",
	Short: "Run the miner inside the node container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		c, err := p.LoadCkbConfig()
		if err != nil {
			return err
		}
		if _, err := c.Miner(); err != nil {
			return err
		}
		env, err := p.Env()
		if err != nil {
			return err
		}
		return runDocker(cmd.Context(), docker.Exec(nodeName(p), "ckb", "miner", "-C", env.Miner.ContainerMount))
	},
}

var networkRpcCmd = &cobra.Command{
	Use:   "rpc [method] [params...]",
	Short: "Call a node JSON-RPC method",
	Long:  `Call a node JSON-RPC method. Each param is parsed as JSON, or passed as a string when it is not valid JSON.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := viper.GetString("node-rpc")
		if url == "" {
			p, err := loadProject()
			if err != nil {
				return err
			}
			env, err := p.Env()
			if err != nil {
				return err
			}
			url = fmt.Sprintf("http://%s:%d", env.Chain.Host, env.Chain.HostPort)
		}

		params := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			var v any
			if err := json.Unmarshal([]byte(a), &v); err != nil {
				v = a
			}
			params = append(params, v)
		}

		client, err := rpc.Dial(cmd.Context(), url)
		if err != nil {
			return err
		}
		defer client.Close()

		var result json.RawMessage
		if err := client.Call(cmd.Context(), &result, args[0], params...); err != nil {
			return fmt.Errorf("rpc %s failed: %w", args[0], err)
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var networkComposeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Write a docker-compose.yml running a node, a miner and an indexer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		env, err := p.Env()
		if err != nil {
			return err
		}
		node := compose.NodeService(p.Config.Name, env.Chain.HostPort, true)
		if _, err := compose.WriteMinerConfig(p.RootDir, p.Config.Name, node); err != nil {
			return err
		}
		f := compose.New(
			node,
			compose.MinerService(p.Config.Name, true, node),
			compose.IndexerService(node, env.Indexer.HostPort),
		)
		path := p.Path("docker-compose.yml")
		if err := f.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compose file written to %s\n", path)
		return nil
	},
}

// decodeHex accepts hex with or without the 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func init() {
	networkInitCmd.Flags().Uint16("node-port", 8114, "Host port of the node RPC")
	networkInitCmd.Flags().Uint16("indexer-port", 8116, "Host port of the indexer RPC")
	networkInitCmd.Flags().Bool("pull", false, "Pull the node and indexer images first")
	if err := viper.BindPFlags(networkInitCmd.Flags()); err != nil {
		slog.Error("Failed to bind networkInitCmd flags", "error", err)
	}

	networkLogsCmd.Flags().StringP("logs-out", "o", "", "Write the logs to this file")
	networkLogsCmd.Flags().BoolP("follow", "f", false, "Follow the log output")
	if err := viper.BindPFlags(networkLogsCmd.Flags()); err != nil {
		slog.Error("Failed to bind networkLogsCmd flags", "error", err)
	}

	networkSetMinerCmd.Flags().String("pubkey", "", "Compressed secp256k1 public key, hex")
	networkSetMinerCmd.Flags().String("lock-arg", "", "20 bytes sighash lock arg, hex")
	networkSetMinerCmd.MarkFlagsMutuallyExclusive("pubkey", "lock-arg")
	networkSetMinerCmd.MarkFlagsOneRequired("pubkey", "lock-arg")
	if err := viper.BindPFlags(networkSetMinerCmd.Flags()); err != nil {
		slog.Error("Failed to bind networkSetMinerCmd flags", "error", err)
	}

	networkRpcCmd.Flags().String("node-rpc", "", "Node RPC address, defaults to the project chain")
	if err := viper.BindPFlags(networkRpcCmd.Flags()); err != nil {
		slog.Error("Failed to bind networkRpcCmd flags", "error", err)
	}

	NetworkCmd.AddCommand(
		networkInitCmd,
		networkRecreateCmd,
		networkLaunchCmd,
		networkStopCmd,
		networkResetCmd,
		networkLogsCmd,
		networkStatusCmd,
		networkDeleteCmd,
		networkSetMinerCmd,
		networkConfigCmd,
		networkIndexCmd,
		networkMinerCmd,
		networkRpcCmd,
		networkComposeCmd,
	)
}
