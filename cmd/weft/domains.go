package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/domains"
)

var (
	domainsFormat      string
	registerDomainDesc string
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Manage the business domain registry",
}

var domainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered domains with reference counts",
	Long: `List every domain the model knows about: registered ones and any
names referenced by definition metadata without registration.`,
	Args: cobra.NoArgs,
	Run:  runDomainsList,
}

var domainsRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a domain tag",
	Args:  cobra.ExactArgs(1),
	Run:   runDomainsRegister,
}

var domainsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge DOMAINS.toml declarations into the registry",
	Long: `Read DOMAINS.toml from the repo root and register every declared
domain. Existing registrations keep their ids; declared descriptions
overwrite stored ones. A missing file is not an error.`,
	Args: cobra.NoArgs,
	Run:  runDomainsSync,
}

func init() {
	domainsCmd.PersistentFlags().StringVar(&domainsFormat, "format", "json", "Output format (json, human)")
	domainsRegisterCmd.Flags().StringVar(&registerDomainDesc, "description", "", "One-line description")
	domainsCmd.AddCommand(domainsListCmd)
	domainsCmd.AddCommand(domainsRegisterCmd)
	domainsCmd.AddCommand(domainsSyncCmd)
	rootCmd.AddCommand(domainsCmd)
}

type DomainListResponseCLI struct {
	Domains []domains.Usage `json:"domains"`
	Total   int             `json:"total"`
}

type DomainRegisterResponseCLI struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DomainSyncResponseCLI struct {
	Declared int `json:"declared"`
	Merged   int `json:"merged"`
}

func runDomainsList(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	registered, err := st.ListDomains()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing domains: %v\n", err)
		os.Exit(1)
	}
	inUse, err := st.DomainsInUse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting domain references: %v\n", err)
		os.Exit(1)
	}

	usage := domains.MergeUsage(registered, inUse)
	emit(&DomainListResponseCLI{Domains: usage, Total: len(usage)}, domainsFormat)
}

func runDomainsRegister(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	id, err := st.UpsertDomain(args[0], registerDomainDesc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error registering domain: %v\n", err)
		os.Exit(1)
	}
	emit(&DomainRegisterResponseCLI{ID: id, Name: args[0]}, domainsFormat)
}

func runDomainsSync(cmd *cobra.Command, args []string) {
	logger := newLogger()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	decls, err := domains.LoadDeclarations(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", domains.DeclarationFile, err)
		os.Exit(1)
	}

	merged := 0
	for _, d := range decls {
		if _, err := st.UpsertDomain(d.Name, d.Description); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering domain %q: %v\n", d.Name, err)
			os.Exit(1)
		}
		merged++
	}

	logger.Info("domains synced", "declared", len(decls), "merged", merged)
	emit(&DomainSyncResponseCLI{Declared: len(decls), Merged: merged}, domainsFormat)
}
