// Command ramsnapctl saves guest RAM images into snapshot files, inspects
// snapshot indexes and restores snapshots into memory.
package main

func main() {
	execute()
}
