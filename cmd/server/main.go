// Command tiefsee runs the tiefsee gateway, which serves the OpenAI Chat
// Completions API on top of the DeepSeek web chat backend.
//
// Usage:
//
//	# Start the gateway with discovered configuration
//	tiefsee serve
//
//	# Start with an explicit config file and port
//	tiefsee serve --config /etc/tiefsee/config.yaml --port 9000
//
//	# Check whether refresh tokens are still accepted
//	tiefsee token check <token> [<token>...]
//
//	# Show version information
//	tiefsee version
package main

func main() {
	Execute()
}
