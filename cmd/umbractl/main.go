// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// umbractl is an operator tool for inspecting and poking the bucket:
// uploading documents, appending manifest entries, listing partitions,
// searching the index and minting presigned URLs.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/manifest"
	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/search"
	"github.com/silvioiatech/Umbra-sub003/storage"
	"github.com/silvioiatech/Umbra-sub003/storage/s3client"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "umbractl",
		Short:        "inspect and manage the object store data layer",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("endpoint", "", "S3-compatible endpoint host")
	flags.String("access-key", "", "access key id")
	flags.String("secret-key", "", "secret access key")
	flags.String("bucket", "", "bucket name")
	flags.String("region", "auto", "bucket region")
	flags.Bool("insecure", false, "use plain http")
	flags.String("format", "parquet", "tabular manifest format (parquet or csv)")
	flags.String("user", "", "user id scoping manifests and indexes")

	viper.SetEnvPrefix("umbra")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(flags))

	root.AddCommand(
		statsCmd(),
		uploadCmd(),
		appendCmd(),
		readCmd(),
		partitionsCmd(),
		catalogCmd(),
		searchCmd(),
		presignCmd(),
	)
	return root
}

// env bundles the constructed services for one command invocation.
type env struct {
	log     *zap.Logger
	store   *objects.Store
	manager *manifest.Manager
	catalog *manifest.Catalog
	index   *search.Index
	userID  string
}

func newEnv() (*env, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	client, err := s3client.New(log.Named("s3"), s3client.Config{
		Endpoint:        viper.GetString("endpoint"),
		AccessKeyID:     viper.GetString("access-key"),
		SecretAccessKey: viper.GetString("secret-key"),
		Bucket:          viper.GetString("bucket"),
		Region:          viper.GetString("region"),
		Insecure:        viper.GetBool("insecure"),
	})
	if err != nil {
		return nil, err
	}

	codec := manifest.TabularCodec(manifest.ParquetCodec())
	if viper.GetString("format") == "csv" {
		codec = manifest.CSVCodec()
	}

	store := objects.New(log.Named("objects"), client)
	manager := manifest.NewManager(log.Named("manifest"), store, codec)
	return &env{
		log:     log,
		store:   store,
		manager: manager,
		catalog: manifest.NewCatalog(log.Named("catalog"), store, manager),
		index:   search.NewIndex(log.Named("search"), store),
		userID:  viper.GetString("user"),
	}, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show bucket usage by prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			stats, err := env.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func uploadCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "store a document under its content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := env.store.StoreDocument(cmd.Context(), data, args[0], contentType)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "payload content type")
	return cmd
}

func appendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append <module> <name> <json>",
		Short: "append one entry to a JSONL manifest",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			var entry map[string]interface{}
			if err := json.Unmarshal([]byte(args[2]), &entry); err != nil {
				return fmt.Errorf("entry must be a JSON object: %w", err)
			}
			result, err := env.manager.Append(cmd.Context(), args[0], args[1], entry, env.userID, manifest.DefaultMaxRetries)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func readCmd() *cobra.Command {
	var limit int
	var newest bool
	cmd := &cobra.Command{
		Use:   "read <module> <name>",
		Short: "read a JSONL manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			records, err := env.manager.Read(cmd.Context(), args[0], args[1], env.userID, manifest.ReadOptions{
				Limit:  limit,
				Newest: newest,
			})
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to return")
	cmd.Flags().BoolVar(&newest, "newest", false, "newest entries first")
	return cmd
}

func partitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions <module> <name>",
		Short: "list tabular manifest partitions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			partitions, err := env.manager.Partitions(cmd.Context(), args[0], args[1], env.userID)
			if err != nil {
				return err
			}
			return printJSON(partitions)
		},
	}
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <module> [query]",
		Short: "list or search cataloged uploads",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			var entries []manifest.Entry
			if len(args) == 2 {
				entries, err = env.catalog.Search(cmd.Context(), args[0], env.userID, args[1])
			} else {
				entries, err = env.catalog.Entries(cmd.Context(), args[0], env.userID)
			}
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
}

func searchCmd() *cobra.Command {
	var anyKeyword bool
	var merchant string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <module> [keyword...]",
		Short: "search the inverted index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if merchant != "" {
				results, err := env.index.SearchMerchants(ctx, args[0], env.userID, merchant, limit)
				if err != nil {
					return err
				}
				return printJSON(results)
			}

			if len(args) < 2 {
				return fmt.Errorf("need keywords or --merchant")
			}
			op := search.OpAnd
			if anyKeyword {
				op = search.OpOr
			}
			results, err := env.index.SearchKeywords(ctx, args[0], env.userID, args[1:], op, limit)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().BoolVar(&anyKeyword, "any", false, "match any keyword instead of all")
	cmd.Flags().StringVar(&merchant, "merchant", "", "search by merchant name instead of keywords")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results to return")
	return cmd
}

func presignCmd() *cobra.Command {
	var put bool
	var expires time.Duration
	cmd := &cobra.Command{
		Use:   "presign <key>",
		Short: "mint a time-limited direct access URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			method := storage.MethodGet
			if put {
				method = storage.MethodPut
			}
			url, err := env.store.PresignURL(cmd.Context(), args[0], method, expires)
			if err != nil {
				return err
			}
			fmt.Println(url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&put, "put", false, "presign an upload instead of a download")
	cmd.Flags().DurationVar(&expires, "expires", time.Hour, "URL lifetime")
	return cmd
}
