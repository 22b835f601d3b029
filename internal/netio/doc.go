// Package netio provides raw socket abstractions for protocol packet I/O:
// BFD's GTSM-checked unicast sockets (ports 3784/4784, RFC 5881/5883) and
// the multicast transports OSPF (IP protocol 89, AllSPFRouters/AllDRouters)
// and LDP discovery (UDP port 646, 224.0.0.2) use instead.
//
// Linux-specific implementation uses golang.org/x/net and golang.org/x/sys/unix.
package netio
