// Command beaconctl validates Beacon messages and manages the beacon catalog.
//
// Usage:
//
//	# Validate allele requests
//	beaconctl validate --type beacon_allele_request request.json
//
//	# Validate a response against the request that produced it
//	beaconctl validate --type beacon_allele_response --request request.json response.json
//
//	# Describe the fields of a record type
//	beaconctl schema --type beacon_dataset
//
//	# Compose a response from recorded dataset results
//	beaconctl compose --beacon beacon.json --results results.json request.json
//
//	# Load Beacon documents from blob storage into the catalog
//	beaconctl catalog load --config beaconcore.yaml
//
// Exit status is 0 on success, 1 when a message is rejected or a command
// fails and 2 on usage errors.
package main

import "os"

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}
