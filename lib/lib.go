/*package lib contains the configuration layer used by the halox binary: the
config file and command line parsing, the validation done by the "check"
mode, and a few small utilities. Almost all of the heavy lifting is done by
lib/'s subpackages.
*/
package lib

// Version is the version of the software. It is printed by the "help" mode
// and at the start of every run.
var Version uint64 = 0x1
