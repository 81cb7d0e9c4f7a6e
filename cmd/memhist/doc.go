/*
memhist replays a memory-event trace through the region engine and
prints the shutdown report: the bounded write history of every tracked
region and a summary of every protected range.

A trace is a text file (optionally gzip- or snappy-compressed) of
client requests and observed accesses, one per line:

	track 0x1000 80 8 3 vec
	store 0x1018 8 100
	protect 0x2000 16 x W
	store 0x2004 1 0xff

Sample usage:
memhist --trace-mem=yes --enable-tracking=RWX events.trace
*/
package main
