package mining

import "github.com/h3tag-core/consensus/logs"

var log, _ = logs.Get(logs.SubsystemTags.POWE)
