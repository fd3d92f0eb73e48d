// Command peer is a headless participant: it joins a room over the relay and
// keeps a pion link to every other member.
package main

func main() {
	Execute()
}
