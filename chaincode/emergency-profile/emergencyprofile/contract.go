package emergencyprofile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	keyPrefix    = "EMERGENCY_PROFILE_"
	updatedEvent = "EmergencyProfileUpdated"
	deletedEvent = "EmergencyProfileDeleted"

	roleAttribute = "role"
	roleAdmin     = "admin"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// SmartContract stores the emergency profile a legacy QR link resolves to
type SmartContract struct {
	contractapi.Contract
}

// EmergencyProfile is the on-chain copy of a patient's emergency data. The
// JSON field names match the patient profile API.
type EmergencyProfile struct {
	WalletAddress      string `json:"walletAddress"`
	FullName           string `json:"fullName"`
	BloodGroup         string `json:"bloodGroup"`
	Allergies          string `json:"allergies"`
	ChronicConditions  string `json:"chronicConditions"`
	CurrentMedications string `json:"currentMedications"`
	EmergencyName      string `json:"emergencyName"`
	EmergencyPhone     string `json:"emergencyPhone"`
	UpdatedAt          string `json:"updatedAt"`
	UpdatedBy          string `json:"updatedBy"`
	TxID               string `json:"txId"`
}

// PutEmergencyProfile creates or replaces the profile for its wallet. An
// existing profile may only be replaced by its last writer or an admin.
func (s *SmartContract) PutEmergencyProfile(ctx contractapi.TransactionContextInterface, profileJSON string) error {
	var profile EmergencyProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return fmt.Errorf("invalid profile JSON: %v", err)
	}

	wallet, err := normalizeWallet(profile.WalletAddress)
	if err != nil {
		return err
	}
	profile.WalletAddress = wallet

	callerID, err := s.authorizeWrite(ctx, wallet)
	if err != nil {
		return err
	}

	stub := ctx.GetStub()
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return fmt.Errorf("failed to read transaction timestamp: %v", err)
	}
	profile.UpdatedAt = ts.AsTime().UTC().Format(time.RFC3339)
	profile.TxID = stub.GetTxID()
	profile.UpdatedBy = callerID

	profileBytes, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := stub.PutState(keyPrefix+wallet, profileBytes); err != nil {
		return fmt.Errorf("failed to put emergency profile: %v", err)
	}

	return stub.SetEvent(updatedEvent, []byte(wallet))
}

// ReadEmergencyProfile returns the profile stored for walletAddress
func (s *SmartContract) ReadEmergencyProfile(ctx contractapi.TransactionContextInterface, walletAddress string) (*EmergencyProfile, error) {
	wallet, err := normalizeWallet(walletAddress)
	if err != nil {
		return nil, err
	}

	profile, err := s.readProfile(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("emergency profile %s does not exist", wallet)
	}
	return profile, nil
}

// EmergencyProfileExists reports whether a profile is stored for walletAddress
func (s *SmartContract) EmergencyProfileExists(ctx contractapi.TransactionContextInterface, walletAddress string) (bool, error) {
	wallet, err := normalizeWallet(walletAddress)
	if err != nil {
		return false, err
	}

	profileBytes, err := ctx.GetStub().GetState(keyPrefix + wallet)
	if err != nil {
		return false, fmt.Errorf("failed to read from world state: %v", err)
	}
	return profileBytes != nil, nil
}

// DeleteEmergencyProfile removes the profile for walletAddress. Only the
// identity that last wrote it or an admin may remove it.
func (s *SmartContract) DeleteEmergencyProfile(ctx contractapi.TransactionContextInterface, walletAddress string) error {
	wallet, err := normalizeWallet(walletAddress)
	if err != nil {
		return err
	}

	existing, err := s.readProfile(ctx, wallet)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("emergency profile %s does not exist", wallet)
	}
	if _, err := s.authorizeWrite(ctx, wallet); err != nil {
		return err
	}

	if err := ctx.GetStub().DelState(keyPrefix + wallet); err != nil {
		return fmt.Errorf("failed to delete emergency profile: %v", err)
	}
	return ctx.GetStub().SetEvent(deletedEvent, []byte(wallet))
}

// authorizeWrite returns the caller ID when the caller may write the profile
// stored under wallet: nobody owns it yet, the caller wrote it last, or the
// caller carries the admin role attribute.
func (s *SmartContract) authorizeWrite(ctx contractapi.TransactionContextInterface, wallet string) (string, error) {
	clientIdentity := ctx.GetClientIdentity()
	callerID, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %v", err)
	}

	existing, err := s.readProfile(ctx, wallet)
	if err != nil {
		return "", err
	}
	if existing == nil || existing.UpdatedBy == callerID {
		return callerID, nil
	}

	role, found, err := clientIdentity.GetAttributeValue(roleAttribute)
	if err != nil {
		return "", fmt.Errorf("failed to get role attribute: %v", err)
	}
	if found && role == roleAdmin {
		return callerID, nil
	}
	return "", fmt.Errorf("caller is not allowed to modify emergency profile %s", wallet)
}

func (s *SmartContract) readProfile(ctx contractapi.TransactionContextInterface, wallet string) (*EmergencyProfile, error) {
	profileBytes, err := ctx.GetStub().GetState(keyPrefix + wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read emergency profile from world state: %v", err)
	}
	if profileBytes == nil {
		return nil, nil
	}

	var profile EmergencyProfile
	if err := json.Unmarshal(profileBytes, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// normalizeWallet lowercases and validates a 0x-prefixed wallet address
func normalizeWallet(walletAddress string) (string, error) {
	wallet := strings.ToLower(strings.TrimSpace(walletAddress))
	if !walletPattern.MatchString(wallet) {
		return "", fmt.Errorf("invalid wallet address %q", walletAddress)
	}
	return wallet, nil
}
