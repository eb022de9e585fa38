package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/chaincode/emergency-profile/emergencyprofile"
)

func main() {
	chaincode, err := contractapi.NewChaincode(&emergencyprofile.SmartContract{})
	if err != nil {
		log.Panicf("Error creating EmergencyProfile chaincode: %v", err)
	}

	if err := chaincode.Start(); err != nil {
		log.Panicf("Error starting EmergencyProfile chaincode: %v", err)
	}
}
