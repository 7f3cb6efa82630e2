package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseIPWithMask parses an IP address with CIDR notation.
// Returns the IP, mask length, and any error.
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// ComputeNetworkAddr returns the network address for a given IP and mask
func ComputeNetworkAddr(ipStr string, maskLen int) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	ip = ip.To4()
	if ip == nil {
		return ""
	}

	mask := net.CIDRMask(maskLen, 32)
	return ip.Mask(mask).String()
}

// CanonicalSubnet returns the CIDR rewritten to its network address
// ("10.0.10.5/24" becomes "10.0.10.0/24"). Returns "" for unparseable
// input.
func CanonicalSubnet(cidr string) string {
	ip, maskLen, err := ParseIPWithMask(cidr)
	if err != nil {
		return ""
	}
	network := ComputeNetworkAddr(ip.String(), maskLen)
	if network == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", network, maskLen)
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPv4CIDR checks if a string is a valid IPv4 CIDR notation
func IsValidIPv4CIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	parts := strings.Split(cidr, "/")
	ip := net.ParseIP(parts[0])
	return ip != nil && ip.To4() != nil
}

// IPInSubnet reports whether ipStr falls inside the subnet given in CIDR
// notation. Returns false for unparseable inputs.
func IPInSubnet(ipStr, cidr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return ipNet.Contains(ip)
}

// SubnetsOverlap reports whether two CIDR subnets share any addresses.
// Two subnets overlap iff one contains the other's network address.
func SubnetsOverlap(cidrA, cidrB string) bool {
	_, netA, errA := net.ParseCIDR(cidrA)
	_, netB, errB := net.ParseCIDR(cidrB)
	if errA != nil || errB != nil {
		return false
	}
	return netA.Contains(netB.IP) || netB.Contains(netA.IP)
}

// ValidateVLANID checks if a VLAN ID is within the 802.1Q range (1-4094).
func ValidateVLANID(id int) error {
	if id < 1 || id > 4094 {
		return fmt.Errorf("VLAN ID must be between 1 and 4094, got %d", id)
	}
	return nil
}

// ParsePortRange parses a firewall port specification into a start/end pair.
// Accepts a single port ("443") or a range ("8000-8010"). An empty spec
// means any port and returns (0, 0).
func ParsePortRange(spec string) (int, int, error) {
	if spec == "" {
		return 0, 0, nil
	}

	if strings.Contains(spec, "-") {
		parts := strings.SplitN(spec, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid start port in range %s: %v", spec, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid end port in range %s: %v", spec, err)
		}
		if start > end {
			return 0, 0, fmt.Errorf("start port %d greater than end port %d in range %s", start, end, spec)
		}
		if err := validatePort(start); err != nil {
			return 0, 0, err
		}
		if err := validatePort(end); err != nil {
			return 0, 0, err
		}
		return start, end, nil
	}

	port, err := strconv.Atoi(strings.TrimSpace(spec))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port: %s", spec)
	}
	if err := validatePort(port); err != nil {
		return 0, 0, err
	}
	return port, port, nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
