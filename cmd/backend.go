package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teemow/maildex/internal/embed"
	"github.com/teemow/maildex/internal/vector"
)

// backendFlags holds the embedding endpoint and vector store flags shared by
// the index, serve and ask commands. Empty values fall back to environment
// variables and then to the package defaults.
type backendFlags struct {
	embedModel   string
	embedBaseURL string
	embedAPIKey  string
	embedDims    int

	qdrantHost  string
	qdrantPort  int
	senderColl  string
	contentColl string
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.embedModel, "embed-model", "", "Embedding model (default text-embedding-3-small)")
	cmd.Flags().StringVar(&f.embedBaseURL, "embed-base-url", "", "OpenAI-compatible embeddings endpoint. Can also use OPENAI_BASE_URL env var.")
	cmd.Flags().StringVar(&f.embedAPIKey, "embed-api-key", "", "Embeddings API key. Can also use OPENAI_API_KEY env var.")
	cmd.Flags().IntVar(&f.embedDims, "embed-dims", 0, "Embedding dimensions; 0 probes the endpoint")

	cmd.Flags().StringVar(&f.qdrantHost, "qdrant-host", "", "Qdrant host. Can also use QDRANT_HOST env var (default localhost).")
	cmd.Flags().IntVar(&f.qdrantPort, "qdrant-port", 0, "Qdrant gRPC port. Can also use QDRANT_PORT env var (default 6334).")
	cmd.Flags().StringVar(&f.senderColl, "sender-collection", "", "Sender index collection name (default mail_senders)")
	cmd.Flags().StringVar(&f.contentColl, "content-collection", "", "Content index collection name (default mail_content)")
}

func (f *backendFlags) embedConfig() embed.Config {
	apiKey := f.embedAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := f.embedBaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	return embed.Config{
		Model:      f.embedModel,
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Dimensions: f.embedDims,
	}
}

func (f *backendFlags) vectorConfig() vector.Config {
	host := f.qdrantHost
	if host == "" {
		host = os.Getenv("QDRANT_HOST")
	}
	port := f.qdrantPort
	if port == 0 {
		if v := os.Getenv("QDRANT_PORT"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				port = parsed
			}
		}
	}
	return vector.Config{
		Host:              host,
		Port:              port,
		SenderCollection:  f.senderColl,
		ContentCollection: f.contentColl,
	}
}
