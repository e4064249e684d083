package redis

var ReleaseStateScriptHash = releaseStateScript.Hash()
