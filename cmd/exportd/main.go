// Exportd exports clinical study data collected through deployments.
//
// It renders primitives, users and consent logs of one deployment, a list of
// deployments or an organization into JSON or CSV files, either synchronously
// or as background processes picked up by `exportd run`.
//
// Usage:
//
//	# Run background workers, sweepers and the metrics endpoint
//	exportd run --config /etc/exportd/config.yaml
//
//	# Export one deployment to a zip archive
//	exportd export --deployment 5f2a... --param format=CSV --out export.zip
//
//	# Queue a background export and follow it
//	exportd process submit --requester u1 --deployment 5f2a...
//	exportd process list --requester u1
//
//	# Save a default profile for a deployment
//	exportd profile set --deployment 5f2a... --name default --default --param view=DAY
package main

import "os"

func main() {
	os.Exit(Execute())
}
