package emergencyprofile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const testWallet = "0xABC0000000000000000000000000000000000123"

// mockStub keeps world state in memory. Methods the contract does not call
// are left to the embedded nil interface.
type mockStub struct {
	shim.ChaincodeStubInterface
	state  map[string][]byte
	events []string
}

func (m *mockStub) GetState(key string) ([]byte, error) { return m.state[key], nil }

func (m *mockStub) PutState(key string, value []byte) error {
	m.state[key] = value
	return nil
}

func (m *mockStub) DelState(key string) error {
	delete(m.state, key)
	return nil
}

func (m *mockStub) GetTxID() string { return "tx-1" }

func (m *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)), nil
}

func (m *mockStub) SetEvent(name string, payload []byte) error {
	m.events = append(m.events, name)
	return nil
}

const patientApp = "x509::CN=patient-app"

type mockIdentity struct {
	cid.ClientIdentity
	id   string
	role string
}

func (m mockIdentity) GetID() (string, error) { return m.id, nil }

func (m mockIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	if attrName != roleAttribute || m.role == "" {
		return "", false, nil
	}
	return m.role, true, nil
}

func newContext() (*contractapi.TransactionContext, *mockStub) {
	stub := &mockStub{state: map[string][]byte{}}
	return contextAs(stub, mockIdentity{id: patientApp}), stub
}

// contextAs shares stub's world state with a different caller
func contextAs(stub *mockStub, identity mockIdentity) *contractapi.TransactionContext {
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(stub)
	ctx.SetClientIdentity(identity)
	return ctx
}

func profileJSON(t *testing.T, wallet string) string {
	raw, err := json.Marshal(EmergencyProfile{
		WalletAddress: wallet,
		FullName:      "Jane Doe",
		BloodGroup:    "O-",
		Allergies:     "Penicillin",
	})
	require.NoError(t, err)
	return string(raw)
}

func TestPutAndReadEmergencyProfile(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()

	require.NoError(t, contract.PutEmergencyProfile(ctx, profileJSON(t, testWallet)))
	assert.Equal(t, []string{updatedEvent}, stub.events)

	profile, err := contract.ReadEmergencyProfile(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000123", profile.WalletAddress)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, "2024-03-01T12:00:00Z", profile.UpdatedAt)
	assert.Equal(t, patientApp, profile.UpdatedBy)
	assert.Equal(t, "tx-1", profile.TxID)

	// lookups are case insensitive
	_, err = contract.ReadEmergencyProfile(ctx, "0xabc0000000000000000000000000000000000123")
	assert.NoError(t, err)
}

func TestReadEmergencyProfile_Missing(t *testing.T) {
	contract := new(SmartContract)
	ctx, _ := newContext()

	_, err := contract.ReadEmergencyProfile(ctx, testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPutEmergencyProfile_Invalid(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()

	assert.Error(t, contract.PutEmergencyProfile(ctx, "{"))
	assert.Error(t, contract.PutEmergencyProfile(ctx, profileJSON(t, "0x123")))
	assert.Empty(t, stub.state)
}

func TestDeleteEmergencyProfile(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()

	require.NoError(t, contract.PutEmergencyProfile(ctx, profileJSON(t, testWallet)))
	require.NoError(t, contract.DeleteEmergencyProfile(ctx, testWallet))
	assert.Equal(t, []string{updatedEvent, deletedEvent}, stub.events)

	exists, err := contract.EmergencyProfileExists(ctx, testWallet)
	require.NoError(t, err)
	assert.False(t, exists)

	err = contract.DeleteEmergencyProfile(ctx, testWallet)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPutEmergencyProfile_ForeignCallerRejected(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()
	require.NoError(t, contract.PutEmergencyProfile(ctx, profileJSON(t, testWallet)))

	other := contextAs(stub, mockIdentity{id: "x509::CN=someone-else"})
	forged := `{"walletAddress":"` + testWallet + `","fullName":"Mallory","bloodGroup":"AB+"}`
	err := contract.PutEmergencyProfile(other, forged)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	profile, err := contract.ReadEmergencyProfile(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, patientApp, profile.UpdatedBy)
	assert.Equal(t, []string{updatedEvent}, stub.events)
}

func TestDeleteEmergencyProfile_ForeignCallerRejected(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()
	require.NoError(t, contract.PutEmergencyProfile(ctx, profileJSON(t, testWallet)))

	other := contextAs(stub, mockIdentity{id: "x509::CN=someone-else", role: "doctor"})
	err := contract.DeleteEmergencyProfile(other, testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	exists, err := contract.EmergencyProfileExists(ctx, testWallet)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEmergencyProfile_AdminMayOverwriteAndDelete(t *testing.T) {
	contract := new(SmartContract)
	ctx, stub := newContext()
	require.NoError(t, contract.PutEmergencyProfile(ctx, profileJSON(t, testWallet)))

	admin := contextAs(stub, mockIdentity{id: "x509::CN=registry-admin", role: roleAdmin})
	require.NoError(t, contract.PutEmergencyProfile(admin, profileJSON(t, testWallet)))

	profile, err := contract.ReadEmergencyProfile(admin, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "x509::CN=registry-admin", profile.UpdatedBy)

	require.NoError(t, contract.DeleteEmergencyProfile(admin, testWallet))
	assert.Empty(t, stub.state)
}
