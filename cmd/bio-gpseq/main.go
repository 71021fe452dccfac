// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
bio-gpseq estimates nuclear centrality of genomic regions from GPSeq
read counts, ranks regions by centrality, and compares rankings.

Sample usage:
bio-gpseq estimate -metrics=prob_2p,cor_g -exclude=blacklist.bed counts.tsv scores.tsv
bio-gpseq rank scores.tsv ranks.tsv
bio-gpseq compare -metric-a=prob_2p -metric-b=cor_g -resamples=1000 -seed=1 scores.tsv scores.tsv
bio-gpseq compare-legacy -metric-a=prob_2p -metric-b=prob_2p old_ranks.tsv ranks.tsv
*/
package main

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/gpseq/cmd/bio-gpseq/cmd"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
