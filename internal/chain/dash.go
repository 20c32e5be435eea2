package chain

import (
	"net/netip"
	"time"
)

const (
	// Both networks share the same genesis payload; only the header differs.
	mainnetGenesisHex = "010000000000000000000000000000000000000000000000000000000000000000000000c762a6567f3cc092f0684bb62b7e00a84890b990f07cc71a6bb58d64b98e02e0b9968054ffff7f20ffba10000101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff6204ffff001d01044c5957697265642030392f4a616e2f3230313420546865204772616e64204578706572696d656e7420476f6573204c6976653a204f76657273746f636b2e636f6d204973204e6f7720416363657074696e6720426974636f696e73ffffffff0100f2052a010000004341040184710fa689ad5023690c80f3a49c8f13f8d45b8c857fbcbc8bc4a8e4d3eb4b10f4d4604fa08dce601aaf0f470216fe1b51850b4acf21b179c45070ac7b03a9ac00000000"
	testnetGenesisHex = "010000000000000000000000000000000000000000000000000000000000000000000000c762a6567f3cc092f0684bb62b7e00a84890b990f07cc71a6bb58d64b98e02e0dee1e352f0ff0f1ec3c927e60101000000010000000000000000000000000000000000000000000000000000000000000000ffffffff6204ffff001d01044c5957697265642030392f4a616e2f3230313420546865204772616e64204578706572696d656e7420476f6573204c6976653a204f76657273746f636b2e636f6d204973204e6f7720416363657074696e6720426974636f696e73ffffffff0100f2052a010000004341040184710fa689ad5023690c80f3a49c8f13f8d45b8c857fbcbc8bc4a8e4d3eb4b10f4d4604fa08dce601aaf0f470216fe1b51850b4acf21b179c45070ac7b03a9ac00000000"

	powLimitHex = "00000fffff000000000000000000000000000000000000000000000000000000"
)

// DashMainnet returns the Dash mainnet parameters.
func DashMainnet() *Params {
	return &Params{
		Name:     "dash-main",
		Aliases:  []string{"dash-mainnet"},
		Network:  Mainnet,
		Symbol:   "DASH",
		Decimals: 8,

		// BIP44 coin type 5
		CoinType:       5,
		DefaultPurpose: 44, // Legacy only

		PubKeyHashAddrID: 76,  // X...
		ScriptHashAddrID: 16,  // 7...
		PrivateKeyID:     204, // 7... or X...
		Bech32HRP:        "dash",

		// Dash reuses the Bitcoin xprv/xpub magics
		HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4}, // xprv
		HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e}, // xpub

		DefaultPort: 9999,
		RPCPort:     9998,
		DNSSeeds: []DNSSeed{
			{Name: "dash.org", Host: "dnsseed.dash.org"},
			{Name: "dashdot.io", Host: "dnsseed.dashdot.io"},
			{Name: "masternode.io", Host: "dnsseed.masternode.io"},
			{Name: "dashpay.io", Host: "dnsseed.dashpay.io"},
		},
		FixedSeeds: []netip.AddrPort{
			netip.MustParseAddrPort("179.43.128.239:9999"),
			netip.MustParseAddrPort("128.127.106.235:9999"),
			netip.MustParseAddrPort("37.157.250.10:9999"),
			netip.MustParseAddrPort("162.209.99.35:9999"),
			netip.MustParseAddrPort("108.61.210.54:9999"),
			netip.MustParseAddrPort("172.245.5.132:9999"),
			netip.MustParseAddrPort("46.162.66.10:9999"),
			netip.MustParseAddrPort("78.109.178.195:9999"),
			netip.MustParseAddrPort("138.128.169.94:9999"),
			netip.MustParseAddrPort("52.11.141.229:9999"),
			netip.MustParseAddrPort("37.59.21.58:9999"),
			netip.MustParseAddrPort("46.105.118.15:9999"),
			netip.MustParseAddrPort("178.33.126.221:9999"),
			netip.MustParseAddrPort("104.236.23.131:9999"),
			netip.MustParseAddrPort("108.61.209.37:9999"),
		},

		GenesisHex:  mainnetGenesisHex,
		GenesisHash: mustHash("00000ffd590b1485b3caadc19b22e6379c733355108f107a430458cdf3407ab6"),

		Consensus: Consensus{
			// Blocks per calendar year with DGW v3 is closer to 200700.
			SubsidyHalvingInterval:        210240,
			MajorityEnforceBlockUpgrade:   750,
			MajorityRejectBlockOutdated:   950,
			MajorityWindow:                1000,
			BIP34Hash:                     mustHash("000007d91d1254d60e2dd1ae580383070a4ddffa4c64c2eeb4a2f9ecc0414343"),
			PowLimit:                      mustBigHex(powLimitHex),
			PowTargetTimespan:             24 * time.Hour,
			PowTargetSpacing:              150 * time.Second,
			PowAllowMinDifficultyBlocks:   false,
			PowNoRetargeting:              false,
			RuleChangeActivationThreshold: 1916, // 95% of 2016
			MinerConfirmationWindow:       2016,
			CoinbaseMaturity:              100,
			LitecoinWorkCalculation:       true,
		},

		DefaultAddressType: AddressP2PKH,
	}
}

// DashTestnet returns the Dash testnet parameters.
func DashTestnet() *Params {
	return &Params{
		Name:     "dash-test",
		Aliases:  []string{"dash-testnet"},
		Network:  Testnet,
		Symbol:   "tDASH",
		Decimals: 8,

		// Testnet uses coin type 1 for all coins
		CoinType:       1,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 140, // y...
		ScriptHashAddrID: 19,  // 8... or 9...
		PrivateKeyID:     239, // 9... or c...
		Bech32HRP:        "tdash",

		// BIP32 HD key prefixes (tprv/tpub)
		HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub

		DefaultPort: 19994,
		RPCPort:     19998,
		DNSSeeds: []DNSSeed{
			{Name: "dashdot.io", Host: "testnet-seed.dashdot.io"},
			{Name: "masternode.io", Host: "test.dnsseed.masternode.io"},
		},
		FixedSeeds: []netip.AddrPort{
			netip.MustParseAddrPort("[fd87:d87e:eb43:99cb:2631:ba48:5131:390d]:18333"),
			netip.MustParseAddrPort("[fd87:d87e:eb43:44f4:f4f0:bff7:7e6d:c4e8]:18333"),
		},

		GenesisHex:  testnetGenesisHex,
		GenesisHash: mustHash("00000bafbc94add76cb75e2ec92894837288a481e5c005f6563d91623bf8bc2c"),

		Consensus: Consensus{
			SubsidyHalvingInterval:        210240,
			MajorityEnforceBlockUpgrade:   51,
			MajorityRejectBlockOutdated:   75,
			MajorityWindow:                100,
			PowLimit:                      mustBigHex(powLimitHex),
			PowTargetTimespan:             24 * time.Hour,
			PowTargetSpacing:              150 * time.Second,
			PowAllowMinDifficultyBlocks:   true,
			PowNoRetargeting:              false,
			RuleChangeActivationThreshold: 1512, // 75% for testchains
			MinerConfirmationWindow:       2016,
			CoinbaseMaturity:              100,
			LitecoinWorkCalculation:       true,
		},

		DefaultAddressType: AddressP2PKH,
	}
}
