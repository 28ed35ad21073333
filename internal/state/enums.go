package state

// WalletType is the custodial kind of a wallet.
type WalletType string

const (
	WalletUnknown                WalletType = "UNKNOWN"
	WalletIssuerOwned            WalletType = "ISSUER_OWNED"
	WalletGatewayOwned           WalletType = "GATEWAY_OWNED"
	WalletLiquidityProviderOwned WalletType = "LIQUIDITY_PROVIDER_OWNED"
	WalletRegularUserOwned       WalletType = "REGULAR_USER_OWNED"
)

// Valid reports whether t is a concrete wallet kind.
func (t WalletType) Valid() bool {
	switch t {
	case WalletIssuerOwned, WalletGatewayOwned, WalletLiquidityProviderOwned, WalletRegularUserOwned:
		return true
	}
	return false
}

// WalletStatus is the lifecycle status of a wallet.
type WalletStatus string

const (
	WalletStatusUnknown   WalletStatus = "UNKNOWN"
	WalletStatusActive    WalletStatus = "ACTIVE"
	WalletStatusSuspended WalletStatus = "SUSPENDED"
	WalletStatusClosed    WalletStatus = "CLOSED"
)

// RecordStatus is the status carried by issuance and transfer records.
type RecordStatus string

const (
	StatusUnknown   RecordStatus = "UNKNOWN"
	StatusCompleted RecordStatus = "COMPLETED"
)

// TransferType classifies a transfer by origin and destination wallet kinds.
type TransferType string

const (
	IssuerToGateway                       TransferType = "ISSUER_TO_GATEWAY"
	IssuerToRegularUser                   TransferType = "ISSUER_TO_REGULAR_USER"
	IssuerToLiquidityProvider             TransferType = "ISSUER_TO_LIQUIDITY_PROVIDER"
	GatewayToGateway                      TransferType = "GATEWAY_TO_GATEWAY"
	GatewayToIssuer                       TransferType = "GATEWAY_TO_ISSUER"
	GatewayToRegularUser                  TransferType = "GATEWAY_TO_REGULAR_USER"
	GatewayToLiquidityProvider            TransferType = "GATEWAY_TO_LIQUIDITY_PROVIDER"
	RegularUserToRegularUser              TransferType = "REGULAR_USER_TO_REGULAR_USER"
	RegularUserToIssuer                   TransferType = "REGULAR_USER_TO_ISSUER"
	RegularUserToGateway                  TransferType = "REGULAR_USER_TO_GATEWAY"
	RegularUserToLiquidityProvider        TransferType = "REGULAR_USER_TO_LIQUIDITY_PROVIDER"
	LiquidityProviderToLiquidityProvider  TransferType = "LIQUIDITY_PROVIDER_TO_LIQUIDITY_PROVIDER"
	LiquidityProviderToIssuer             TransferType = "LIQUIDITY_PROVIDER_TO_ISSUER"
	LiquidityProviderToGateway            TransferType = "LIQUIDITY_PROVIDER_TO_GATEWAY"
	LiquidityProviderToRegularUser        TransferType = "LIQUIDITY_PROVIDER_TO_REGULAR_USER"
)

type route struct {
	from, to WalletType
	onUs     bool
}

var transferRoutes = map[TransferType]route{
	IssuerToGateway:                      {WalletIssuerOwned, WalletGatewayOwned, false},
	IssuerToRegularUser:                  {WalletIssuerOwned, WalletRegularUserOwned, true},
	IssuerToLiquidityProvider:            {WalletIssuerOwned, WalletLiquidityProviderOwned, true},
	GatewayToGateway:                     {WalletGatewayOwned, WalletGatewayOwned, false},
	GatewayToIssuer:                      {WalletGatewayOwned, WalletIssuerOwned, false},
	GatewayToRegularUser:                 {WalletGatewayOwned, WalletRegularUserOwned, false},
	GatewayToLiquidityProvider:           {WalletGatewayOwned, WalletLiquidityProviderOwned, false},
	RegularUserToRegularUser:             {WalletRegularUserOwned, WalletRegularUserOwned, true},
	RegularUserToIssuer:                  {WalletRegularUserOwned, WalletIssuerOwned, true},
	RegularUserToGateway:                 {WalletRegularUserOwned, WalletGatewayOwned, false},
	RegularUserToLiquidityProvider:       {WalletRegularUserOwned, WalletLiquidityProviderOwned, true},
	LiquidityProviderToLiquidityProvider: {WalletLiquidityProviderOwned, WalletLiquidityProviderOwned, true},
	LiquidityProviderToIssuer:            {WalletLiquidityProviderOwned, WalletIssuerOwned, true},
	LiquidityProviderToGateway:           {WalletLiquidityProviderOwned, WalletGatewayOwned, false},
	LiquidityProviderToRegularUser:       {WalletLiquidityProviderOwned, WalletRegularUserOwned, true},
}

// TransferTypes lists every classification.
func TransferTypes() []TransferType {
	return []TransferType{
		IssuerToGateway, IssuerToRegularUser, IssuerToLiquidityProvider,
		GatewayToGateway, GatewayToIssuer, GatewayToRegularUser, GatewayToLiquidityProvider,
		RegularUserToRegularUser, RegularUserToIssuer, RegularUserToGateway, RegularUserToLiquidityProvider,
		LiquidityProviderToLiquidityProvider, LiquidityProviderToIssuer, LiquidityProviderToGateway, LiquidityProviderToRegularUser,
	}
}

// Valid reports whether t is one of the known classifications.
func (t TransferType) Valid() bool {
	_, ok := transferRoutes[t]
	return ok
}

// IsOnUs reports whether the transfer stays within a single custodian's wallets.
func (t TransferType) IsOnUs() bool {
	return transferRoutes[t].onUs
}

// Origin returns the sender wallet kind for t.
func (t TransferType) Origin() WalletType {
	if r, ok := transferRoutes[t]; ok {
		return r.from
	}
	return WalletUnknown
}

// Destination returns the recipient wallet kind for t.
func (t TransferType) Destination() WalletType {
	if r, ok := transferRoutes[t]; ok {
		return r.to
	}
	return WalletUnknown
}

// ClassifyTransfer maps an origin and destination wallet kind to a classification.
func ClassifyTransfer(from, to WalletType) (TransferType, bool) {
	for _, t := range TransferTypes() {
		r := transferRoutes[t]
		if r.from == from && r.to == to {
			return t, true
		}
	}
	return "", false
}
