package chain

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"
)

// SeedAddrs returns the fixed seed nodes as TCP multiaddrs.
// IPv4-mapped IPv6 seeds are rendered as /ip4.
func (p *Params) SeedAddrs() ([]multiaddr.Multiaddr, error) {
	addrs := make([]multiaddr.Multiaddr, 0, len(p.FixedSeeds))
	for _, seed := range p.FixedSeeds {
		ip := seed.Addr().Unmap()

		proto := "ip6"
		if ip.Is4() {
			proto = "ip4"
		}

		ma, err := multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, ip, seed.Port()))
		if err != nil {
			return nil, fmt.Errorf("invalid seed %s: %w", seed, err)
		}
		addrs = append(addrs, ma)
	}
	return addrs, nil
}

// DNSSeedHosts returns the DNS seeder hostnames.
func (p *Params) DNSSeedHosts() []string {
	hosts := make([]string, len(p.DNSSeeds))
	for i, s := range p.DNSSeeds {
		hosts[i] = s.Host
	}
	return hosts
}
